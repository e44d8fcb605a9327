package api

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Shopify locale codes: "en" or "en-US".
var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

func validateRun(req RunRequest) error {
	if req.ShopifyURL == "" {
		return fmt.Errorf("shopify_url is required")
	}
	if err := validateShopifyURL(req.ShopifyURL); err != nil {
		return fmt.Errorf("invalid shopify_url: %w", err)
	}
	if req.ShopifyToken == "" {
		return fmt.Errorf("shopify_token is required")
	}
	if req.BREnvironment == "" {
		return fmt.Errorf("br_environment_name is required")
	}
	if req.BRAccountID == "" {
		return fmt.Errorf("br_account_id is required")
	}
	if req.BRCatalog == "" {
		return fmt.Errorf("br_catalog_name is required")
	}
	if req.BRAPIToken == "" {
		return fmt.Errorf("br_api_token is required")
	}

	// Market and language select one storefront view; one without the
	// other is ambiguous.
	if (req.ShopifyMarket == "") != (req.ShopifyLanguage == "") {
		return fmt.Errorf("shopify_market and shopify_language must be provided together")
	}
	if req.ShopifyLanguage != "" && !languagePattern.MatchString(req.ShopifyLanguage) {
		return fmt.Errorf("invalid shopify_language: want a locale like \"en\" or \"en-US\"")
	}

	return nil
}

func validateSchedule(req ScheduleRequest) (domain.DeltaInterval, error) {
	if err := validateRun(req.RunRequest); err != nil {
		return "", err
	}

	if req.Interval == "" {
		return "", fmt.Errorf("interval is required")
	}
	interval, err := domain.ParseInterval(req.Interval)
	if err != nil {
		return "", fmt.Errorf("invalid interval: %w", err)
	}
	return interval, nil
}

func validateShopifyURL(raw string) error {
	// Accept a bare hostname like "shop.myshopify.com".
	u, err := url.Parse("https://" + raw)
	if err != nil {
		return err
	}
	if u.Host == "" || u.Host != raw {
		return fmt.Errorf("want a bare hostname like shop.myshopify.com")
	}
	return nil
}
