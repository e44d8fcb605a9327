package api

import "time"

// RunRequest launches a one-off full sync run.
type RunRequest struct {
	ShopifyURL      string `json:"shopify_url"`
	ShopifyToken    string `json:"shopify_token"`
	BREnvironment   string `json:"br_environment_name"`
	BRAccountID     string `json:"br_account_id"`
	BRCatalog       string `json:"br_catalog_name"`
	BRAPIToken      string `json:"br_api_token"`
	MultiMarket     bool   `json:"multi_market,omitempty"`
	AutoIndex       bool   `json:"auto_index,omitempty"`
	ShopifyMarket   string `json:"shopify_market,omitempty"`
	ShopifyLanguage string `json:"shopify_language,omitempty"`
}

// ScheduleRequest registers a recurring delta sync task.
type ScheduleRequest struct {
	RunRequest
	Interval string `json:"interval"`
}

type RunResponse struct {
	JobName string `json:"job_name"`
}

type ScheduleResponse struct {
	TaskID string `json:"task_id"`
}

type JobStatusResponse struct {
	JobName string `json:"job_name"`
	Status  string `json:"status"`
	Log     string `json:"log,omitempty"`
}

type JobStatusesResponse struct {
	Jobs []JobStatusResponse `json:"jobs"`
}

type TaskResponse struct {
	TaskID            string `json:"task_id"`
	CatalogKey        string `json:"catalog_key"`
	ShopifyURL        string `json:"shopify_url"`
	BRCatalog         string `json:"br_catalog_name"`
	Interval          string `json:"interval"`
	CreatedAt         string `json:"created_at"`
	NextRun           string `json:"next_run"`
	LastSuccessfulRun string `json:"last_successful_run,omitempty"`
	IsRunning         bool   `json:"is_running"`
}

type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeDispatch   = "DISPATCH_ERROR"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
