package domain

import "fmt"

// DeltaSchedule holds everything needed to launch recurring delta runs for
// one catalog. It is immutable once registered; the scheduler owns it until
// the task is cancelled.
type DeltaSchedule struct {
	ShopifyURL      string
	ShopifyToken    string
	BREnvironment   string
	BRAccountID     string
	BRCatalog       string
	BRAPIToken      string
	MultiMarket     bool
	AutoIndex       bool
	ShopifyMarket   string
	ShopifyLanguage string

	Interval DeltaInterval
}

// CatalogKey derives the stable identity under which run state and
// concurrency control are tracked. Identical (source, catalog, account,
// environment) tuples always produce the same key.
func (s DeltaSchedule) CatalogKey() string {
	return fmt.Sprintf("%s-%s-%s-%s", s.ShopifyURL, s.BRCatalog, s.BRAccountID, s.BREnvironment)
}

// RunConfig returns the resolved launch configuration for one run.
func (s DeltaSchedule) RunConfig() RunConfig {
	return RunConfig{
		ShopifyURL:      s.ShopifyURL,
		ShopifyToken:    s.ShopifyToken,
		BREnvironment:   s.BREnvironment,
		BRAccountID:     s.BRAccountID,
		BRCatalog:       s.BRCatalog,
		BRAPIToken:      s.BRAPIToken,
		MultiMarket:     s.MultiMarket,
		AutoIndex:       s.AutoIndex,
		ShopifyMarket:   s.ShopifyMarket,
		ShopifyLanguage: s.ShopifyLanguage,
	}
}

// RunConfig is the fully-resolved configuration handed to the dispatcher for
// a single run, delta or full.
type RunConfig struct {
	ShopifyURL      string
	ShopifyToken    string
	BREnvironment   string
	BRAccountID     string
	BRCatalog       string
	BRAPIToken      string
	MultiMarket     bool
	AutoIndex       bool
	ShopifyMarket   string
	ShopifyLanguage string
}

// CatalogKey derives the same key as DeltaSchedule.CatalogKey.
func (c RunConfig) CatalogKey() string {
	return fmt.Sprintf("%s-%s-%s-%s", c.ShopifyURL, c.BRCatalog, c.BRAccountID, c.BREnvironment)
}
