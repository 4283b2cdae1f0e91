package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareObservesRoute(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/stock/:id", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	if _, err := app.Test(httptest.NewRequest("GET", "/stock/707", nil)); err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	obs := HTTPRequestDuration.WithLabelValues("GET", "/stock/:id", "204")
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatal(err)
	}
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Fatalf("samples=%d", n)
	}
}

func TestPartitionLabel(t *testing.T) {
	if Partition(3) != "3" {
		t.Fatal(Partition(3))
	}
}
