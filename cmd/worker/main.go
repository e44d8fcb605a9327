// The worker binary is the entrypoint of the sync container image. The
// orchestrator launches one container per run and reads the exit code: 0 for
// success, anything else for failure.
package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

func main() {
	shopifyURL := os.Getenv("SHOPIFY_URL")
	catalog := os.Getenv("BR_CATALOG_NAME")
	if shopifyURL == "" || catalog == "" {
		log.Println("worker: SHOPIFY_URL and BR_CATALOG_NAME are required")
		os.Exit(1)
	}

	deltaMode := os.Getenv("DELTA_MODE") == "true"
	if deltaMode {
		startDate := os.Getenv("START_DATE")
		if _, err := time.Parse(time.RFC3339, startDate); err != nil {
			log.Printf("worker: invalid START_DATE %q: %v", startDate, err)
			os.Exit(1)
		}
		log.Printf("worker: delta sync shop=%s catalog=%s since=%s", shopifyURL, catalog, startDate)
	} else {
		log.Printf("worker: full sync shop=%s catalog=%s", shopifyURL, catalog)
	}

	// TODO: replace with the real Shopify export and Bloomreach feed upload
	log.Println("worker: WARNING - stub sync active (replace with the real pipeline before production)")

	// FAIL_EXIT_CODE lets integration tests exercise the failure paths.
	if codeStr := os.Getenv("FAIL_EXIT_CODE"); codeStr != "" {
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			log.Printf("worker: invalid FAIL_EXIT_CODE %q", codeStr)
			os.Exit(1)
		}
		log.Printf("worker: exiting with code %d", code)
		os.Exit(code)
	}

	log.Println("worker: sync complete")
}
