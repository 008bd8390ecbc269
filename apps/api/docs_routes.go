package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/contracts"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
)

// docSpecs maps public documentation names to their contract loaders.
var docSpecs = map[string]func(context.Context) (*openapi3.T, error){
	"billing": contracts.LoadBilling,
}

const swaggerUITemplate = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Palmyra Payroll API - Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body{margin:0} #swagger-ui{max-width:1400px;margin:0 auto}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-standalone-preset.js"></script>
    <script>
      const urls = [/*__SPECS__*/];
      window.ui = SwaggerUIBundle({
        urls: urls,
        "urls.primaryName": urls[0]?.name || '',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        layout: 'StandaloneLayout'
      });
    </script>
  </body>
</html>`

func registerDocsRoutes(router chi.Router, logger *zap.Logger) {
	router.Get("/docs", docsUIHandler())
	router.Get("/openapi/{name}.json", openapiJSONHandler(logger))
}

func docsUIHandler() http.HandlerFunc {
	ui := strings.Replace(swaggerUITemplate, "/*__SPECS__*/", buildDocSpecsList(), 1)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ui))
	}
}

// openapiJSONHandler serves a contract as JSON. Each contract is loaded and marshaled once.
func openapiJSONHandler(logger *zap.Logger) http.HandlerFunc {
	rendered := make(map[string]func() ([]byte, error), len(docSpecs))
	for name, load := range docSpecs {
		rendered[name] = sync.OnceValues(func() ([]byte, error) {
			spec, err := load(context.Background())
			if err != nil {
				return nil, fmt.Errorf("load contract: %w", err)
			}
			return spec.MarshalJSON()
		})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		render, ok := rendered[name]
		if !ok {
			apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "unknown contract")
			return
		}

		b, err := render()
		if err != nil {
			logger.Error("render openapi contract", zap.String("name", name), zap.Error(err))
			apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "failed to render OpenAPI")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

func buildDocSpecsList() string {
	names := lo.Keys(docSpecs)
	sort.Strings(names)
	entries := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("        { url: '/openapi/%s.json', name: '%s' }", name, name)
	})
	return strings.Join(entries, ",\n")
}
