package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

var (
	// ErrJobNotFound is returned when no container matches the job name.
	// Distinguishable from "still running" by contract.
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyRunning is returned when the runtime already reports a run
	// in flight for the catalog. Never retried.
	ErrAlreadyRunning = errors.New("a run for this catalog is already in flight")
)

const namePrefix = "dish-"

// Properties configures the dispatcher.
type Properties struct {
	Image       string        // worker image tag
	HostPath    string        // host directory bound into each container
	ExportPath  string        // mount point inside the container
	Memory      string        // container memory limit, e.g. "4GB"
	LogTimeout  time.Duration // budget for best-effort log retrieval
	MaxAttempts uint          // launch attempts including the first

	RetryInitialInterval time.Duration // first backoff delay

	MarketCacheEnabled     bool
	MarketCacheMaxAgeHours int
}

// MetricsSink records dispatcher metrics; methods must not block.
type MetricsSink interface {
	DispatchRetry()
}

// Dispatcher launches runs in the Docker runtime and answers status queries.
type Dispatcher struct {
	api         API
	props       Properties
	memoryBytes int64
	metrics     MetricsSink // optional, nil = disabled
	clock       func() time.Time
}

// NewDispatcher validates the properties and builds a dispatcher.
func NewDispatcher(api API, props Properties) (*Dispatcher, error) {
	memoryBytes, err := ParseMemorySize(props.Memory)
	if err != nil {
		return nil, fmt.Errorf("dispatcher memory limit: %w", err)
	}
	if props.MaxAttempts == 0 {
		props.MaxAttempts = 3
	}
	if props.RetryInitialInterval <= 0 {
		props.RetryInitialInterval = 2 * time.Second
	}
	if props.LogTimeout <= 0 {
		props.LogTimeout = 30 * time.Second
	}
	return &Dispatcher{
		api:         api,
		props:       props,
		memoryBytes: memoryBytes,
		clock:       time.Now,
	}, nil
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// Launch starts a one-shot full-sync run.
func (d *Dispatcher) Launch(ctx context.Context, cfg domain.RunConfig) (string, error) {
	return d.launch(ctx, cfg, runEnv(cfg))
}

// LaunchDelta starts a delta run covering [startDate, now).
func (d *Dispatcher) LaunchDelta(ctx context.Context, cfg domain.RunConfig, startDate time.Time) (string, error) {
	return d.launch(ctx, cfg, d.deltaEnv(cfg, startDate))
}

// launch creates and starts a container, retrying transient runtime failures
// with bounded exponential backoff. Duplicate-run refusals are permanent.
func (d *Dispatcher) launch(ctx context.Context, cfg domain.RunConfig, env []string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.props.RetryInitialInterval

	attempt := 0
	name, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		if attempt > 1 {
			if d.metrics != nil {
				d.metrics.DispatchRetry()
			}
			log.Printf("docker: launch retry catalog=%s attempt=%d", cfg.CatalogKey(), attempt)
		}

		name, err := d.createAndStart(ctx, cfg, env)
		if err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				return "", backoff.Permanent(err)
			}
			log.Printf("docker: launch attempt %d failed catalog=%s: %v", attempt, cfg.CatalogKey(), err)
			return "", err
		}
		return name, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(d.props.MaxAttempts))
	if err != nil {
		return "", fmt.Errorf("launch run for catalog %s: %w", cfg.CatalogKey(), err)
	}
	return name, nil
}

func (d *Dispatcher) createAndStart(ctx context.Context, cfg domain.RunConfig, env []string) (string, error) {
	// Defense-in-depth: even if a caller skipped the tracker guard, the
	// runtime itself must never hold two runs for one catalog.
	running, err := d.HasRunning(ctx, cfg.CatalogKey())
	if err != nil {
		return "", fmt.Errorf("check in-flight runs: %w", err)
	}
	if running {
		return "", fmt.Errorf("%w: catalog %s", ErrAlreadyRunning, cfg.CatalogKey())
	}

	name := fmt.Sprintf("%s-%d", JobNamePrefix(cfg.CatalogKey()), d.clock().UnixMilli())
	swappiness := int64(10)

	resp, err := d.api.ContainerCreate(ctx,
		&container.Config{
			Image: d.props.Image,
			Env:   env,
		},
		&container.HostConfig{
			Binds:       []string{d.props.HostPath + ":" + d.props.ExportPath},
			OomScoreAdj: -500,
			Resources: container.Resources{
				Memory:           d.memoryBytes,
				MemorySwap:       d.memoryBytes,
				MemorySwappiness: &swappiness,
			},
		},
		nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", name, err)
	}

	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", name, err)
	}

	log.Printf("docker: container started name=%s id=%s", name, resp.ID)
	return name, nil
}

// HasRunning reports whether the runtime currently has a running container
// for the catalog key.
func (d *Dispatcher) HasRunning(ctx context.Context, catalogKey string) (bool, error) {
	// Running containers only.
	containers, err := d.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("list containers: %w", err)
	}

	prefix := "/" + JobNamePrefix(catalogKey)
	for _, c := range containers {
		if len(c.Names) > 0 && strings.HasPrefix(c.Names[0], prefix) {
			return true, nil
		}
	}
	return false, nil
}

// Status looks up one job by name. With deleteOnSuccess a successfully
// finished container is removed after the status is read; with verbose the
// container log is included. Not retried: status can simply be re-polled.
func (d *Dispatcher) Status(ctx context.Context, jobName string, deleteOnSuccess, verbose bool) (domain.Job, error) {
	c, err := d.findByName(ctx, jobName)
	if err != nil {
		return domain.Job{}, err
	}

	status, err := mapStatus(c.Status)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{Name: jobName, Status: status}
	if verbose {
		job.Log = d.containerLogs(ctx, c.ID)
	}

	if deleteOnSuccess && status == domain.JobStatusSuccess {
		if err := d.api.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
			// Non-critical; the reconciler sweeps leftovers.
			log.Printf("docker: failed to remove finished container %s: %v", jobName, err)
		}
	}

	return job, nil
}

// Statuses answers a batch status query with a single container listing.
// Names without a matching container are omitted. With verboseOnFailure the
// log is attached to failed jobs only.
func (d *Dispatcher) Statuses(ctx context.Context, jobNames []string, verboseOnFailure bool) ([]domain.Job, error) {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	jobs := make([]domain.Job, 0, len(jobNames))
	for _, name := range jobNames {
		var found *container.Summary
		for i := range containers {
			if len(containers[i].Names) > 0 && strings.HasPrefix(containers[i].Names[0], "/"+name) {
				found = &containers[i]
				break
			}
		}
		if found == nil {
			continue
		}

		status, err := mapStatus(found.Status)
		if err != nil {
			return nil, err
		}

		job := domain.Job{Name: strings.TrimPrefix(found.Names[0], "/"), Status: status}
		if verboseOnFailure && status == domain.JobStatusFailed {
			job.Log = d.containerLogs(ctx, found.ID)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Remove deletes the container behind a job name.
func (d *Dispatcher) Remove(ctx context.Context, jobName string) error {
	c, err := d.findByName(ctx, jobName)
	if err != nil {
		return err
	}
	if err := d.api.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", jobName, err)
	}
	return nil
}

// ContainerInfo describes one job container for the reconciler.
type ContainerInfo struct {
	ID      string
	Name    string
	State   string
	Created time.Time
}

// JobContainers lists all containers carrying the job name prefix,
// including stopped ones.
func (d *Dispatcher) JobContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var infos []ContainerInfo
	for _, c := range containers {
		if len(c.Names) == 0 {
			continue
		}
		name := strings.TrimPrefix(c.Names[0], "/")
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		infos = append(infos, ContainerInfo{
			ID:      c.ID,
			Name:    name,
			State:   c.State,
			Created: time.Unix(c.Created, 0).UTC(),
		})
	}
	return infos, nil
}

// RemoveContainer deletes a container by ID.
func (d *Dispatcher) RemoveContainer(ctx context.Context, id string) error {
	if err := d.api.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// Ping checks connectivity to the Docker daemon.
func (d *Dispatcher) Ping(ctx context.Context) error {
	if _, err := d.api.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

func (d *Dispatcher) findByName(ctx context.Context, jobName string) (container.Summary, error) {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return container.Summary{}, fmt.Errorf("list containers: %w", err)
	}

	for _, c := range containers {
		if len(c.Names) > 0 && c.Names[0] == "/"+jobName {
			return c, nil
		}
	}
	return container.Summary{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
}

// containerLogs fetches the full container log, best-effort: on any failure
// the error text is returned as the log body rather than propagated.
func (d *Dispatcher) containerLogs(ctx context.Context, containerID string) string {
	logCtx, cancel := context.WithTimeout(ctx, d.props.LogTimeout)
	defer cancel()

	rc, err := d.api.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		log.Printf("docker: failed to retrieve logs for %s: %v", containerID, err)
		return "failed to retrieve logs: " + err.Error()
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		log.Printf("docker: failed to demultiplex logs for %s: %v", containerID, err)
		return "failed to retrieve logs: " + err.Error()
	}
	stdout.Write(stderr.Bytes())
	return stdout.String()
}

// JobNamePrefix derives the container name prefix for a catalog key. All
// concurrency checks against the runtime match on this prefix.
func JobNamePrefix(catalogKey string) string {
	return namePrefix + sanitizeName(catalogKey)
}

// sanitizeName replaces characters Docker does not allow in container names.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// runEnv builds the launch environment for a full-sync run.
func runEnv(cfg domain.RunConfig) []string {
	env := []string{
		"SHOPIFY_URL=" + cfg.ShopifyURL,
		"SHOPIFY_PAT=" + cfg.ShopifyToken,
		"BR_ENVIRONMENT_NAME=" + cfg.BREnvironment,
		"BR_ACCOUNT_ID=" + cfg.BRAccountID,
		"BR_CATALOG_NAME=" + cfg.BRCatalog,
		"BR_API_TOKEN=" + cfg.BRAPIToken,
		"BR_MULTI_MARKET=" + strconv.FormatBool(cfg.MultiMarket),
		"AUTO_INDEX=" + strconv.FormatBool(cfg.AutoIndex),
	}
	if cfg.MultiMarket {
		env = append(env,
			"SHOPIFY_MARKET="+cfg.ShopifyMarket,
			"SHOPIFY_LANGUAGE="+cfg.ShopifyLanguage,
		)
	}
	return env
}

// deltaEnv extends the full-sync environment with the delta window.
func (d *Dispatcher) deltaEnv(cfg domain.RunConfig, startDate time.Time) []string {
	env := runEnv(cfg)
	env = append(env,
		"DELTA_MODE=true",
		"START_DATE="+startDate.UTC().Truncate(time.Second).Format(time.RFC3339),
		"MARKET_CACHE_ENABLED="+strconv.FormatBool(d.props.MarketCacheEnabled),
		"MARKET_CACHE_MAX_AGE_HOURS="+strconv.Itoa(d.props.MarketCacheMaxAgeHours),
	)
	return env
}
