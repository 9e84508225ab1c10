// openapi validates and serves the insert-path writer's admin API
// specification.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: openapi <command>")
		fmt.Println("Commands:")
		fmt.Println("  serve    - serve the admin API documentation")
		fmt.Println("  validate - validate the admin API specification")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveDocumentation()
	case "validate":
		validateSpec()
	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func serveDocumentation() {
	router := mux.NewRouter()

	router.HandleFunc("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		spec, err := loadSpec()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(spec)
	})

	router.HandleFunc("/docs", func(w http.ResponseWriter, _ *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>mergetree-writer admin API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@4/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({ url: "/openapi.json", dom_id: '#swagger-ui' });
    }
  </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	})

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})

	port := os.Getenv("OPENAPI_PORT")
	if port == "" {
		port = "8091"
	}

	fmt.Printf("serving admin API documentation at http://localhost:%s/docs\n", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func validateSpec() {
	doc, err := loadSpec()
	if err != nil {
		fmt.Printf("error loading spec: %v\n", err)
		os.Exit(1)
	}

	if err := doc.Validate(openapi3.NewLoader().Context); err != nil {
		fmt.Printf("validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("admin API specification is valid")
	fmt.Printf("paths: %d\n", doc.Paths.Len())
	fmt.Printf("schemas: %d\n", len(doc.Components.Schemas))
	fmt.Printf("operations: %d\n", countOperations(doc))
}

func loadSpec() (*openapi3.T, error) {
	specPath := "api/openapi.yaml"
	if envPath := os.Getenv("OPENAPI_SPEC_PATH"); envPath != "" {
		specPath = envPath
	}

	cleanPath := filepath.Clean(specPath)
	if strings.Contains(cleanPath, "..") {
		return nil, errors.New("invalid spec path: path traversal not allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is cleaned and validated above
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	var specData interface{}
	if err := yaml.Unmarshal(data, &specData); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	jsonData, err := json.Marshal(specData)
	if err != nil {
		return nil, fmt.Errorf("convert to JSON: %w", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(jsonData)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document: %w", err)
	}
	return doc, nil
}

func countOperations(doc *openapi3.T) int {
	count := 0
	for _, item := range doc.Paths.Map() {
		if item.Get != nil {
			count++
		}
		if item.Post != nil {
			count++
		}
		if item.Put != nil {
			count++
		}
		if item.Delete != nil {
			count++
		}
		if item.Patch != nil {
			count++
		}
	}
	return count
}
