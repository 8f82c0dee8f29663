// README: Smoke cases; intake, customer tracking, lifecycle gates, optimistic concurrency and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const benchPhone = "01712345678"

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// state carried between cases
	requestID string
	ticket    string
	jobID     string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},

		{Name: "Intake: create pickup repair", Run: createRequest},
		{Name: "Intake: missing fields -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/service-requests", map[string]any{}, http.StatusBadRequest)
		}},

		{Name: "Track: wrong phone -> 404", Run: func(ctx context.Context, r *Runner) Result {
			if r.ticket == "" {
				return skipNoRequest()
			}
			return r.expect(ctx, http.MethodGet, "/api/track/"+r.ticket+"?phone=01811111111", nil, http.StatusNotFound)
		}},
		{Name: "Track: matching phone", Run: func(ctx context.Context, r *Runner) Result {
			if r.ticket == "" {
				return skipNoRequest()
			}
			return r.expect(ctx, http.MethodGet, "/api/track/"+r.ticket+"?phone="+benchPhone, nil, http.StatusOK)
		}},

		{Name: "Gate: Arriving to Receive without date -> 422", Run: func(ctx context.Context, r *Runner) Result {
			return r.patchExpect(ctx, map[string]any{"trackingStatus": "Arriving to Receive"}, http.StatusUnprocessableEntity)
		}},
		{Name: "Gate: Technician Assigned before conversion -> 422", Run: func(ctx context.Context, r *Runner) Result {
			return r.patchExpect(ctx, map[string]any{"trackingStatus": "Technician Assigned"}, http.StatusUnprocessableEntity)
		}},

		{Name: "Concurrency: same expected version, one winner", Run: concurrentReview},

		{Name: "Lifecycle: device received", Run: func(ctx context.Context, r *Runner) Result {
			return r.patchExpect(ctx, map[string]any{"trackingStatus": "Received"}, http.StatusOK)
		}},
		{Name: "Lifecycle: convert creates job", Run: convertRequest},
		{Name: "Jobs: assign technician", Run: func(ctx context.Context, r *Runner) Result {
			if r.jobID == "" {
				return Result{Status: "SKIP", Note: "no job"}
			}
			return r.expect(ctx, http.MethodPut, "/api/admin/jobs/"+r.jobID+"/technician", map[string]any{"technician": "Bench Tech"}, http.StatusOK)
		}},
		{Name: "Lifecycle: Technician Assigned after assignment", Run: func(ctx context.Context, r *Runner) Result {
			return r.patchExpect(ctx, map[string]any{"trackingStatus": "Technician Assigned"}, http.StatusOK)
		}},
		{Name: "Gate: backward status -> 422", Run: func(ctx context.Context, r *Runner) Result {
			return r.patchExpect(ctx, map[string]any{"status": "Pending"}, http.StatusUnprocessableEntity)
		}},

		{Name: "Consistency: events cover every version", Run: checkEvents},
		{Name: "Concurrency: racing conversions create one job", Run: concurrentConvert},

		{Name: "Perf: intake throughput", Run: intakeLoad},
	}
}

func skipNoRequest() Result {
	return Result{Status: "SKIP", Note: "no request created"}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: "FAIL", Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	for _, t := range []string{"goose_db_version", "service_requests", "service_request_events", "job_tickets", "pickup_tier_rates"} {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS"}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK)
}

func newRequestBody(mode string) map[string]any {
	return map[string]any{
		"customerName": "Bench Customer",
		"phone":        benchPhone,
		"address":      "Road 5, Dhanmondi",
		"brand":        "Walton",
		"screenSize":   "43\"",
		"primaryIssue": "No picture",
		"serviceMode":  mode,
		"intent":       "repair",
	}
}

func createRequest(ctx context.Context, r *Runner) Result {
	id, ticket, res := r.create(ctx, "pickup")
	if res.Status != "PASS" {
		return res
	}
	r.requestID, r.ticket = id, ticket
	res.Note = ticket
	return res
}

func (r *Runner) create(ctx context.Context, mode string) (string, string, Result) {
	status, body, latency, err := r.call(ctx, http.MethodPost, "/api/service-requests", newRequestBody(mode))
	if err != nil {
		return "", "", Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return "", "", Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	id, _ := body["id"].(string)
	ticket, _ := body["ticketNumber"].(string)
	return id, ticket, Result{Status: "PASS", Latency: latency}
}

func concurrentReview(ctx context.Context, r *Runner) Result {
	if r.requestID == "" {
		return skipNoRequest()
	}
	version, err := r.version(ctx, r.requestID)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	var ok, conflict, limited, other atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, _, _, err := r.call(ctx, http.MethodPatch, "/api/admin/service-requests/"+r.requestID, map[string]any{
				"status":          "Reviewed",
				"expectedVersion": version,
			})
			switch {
			case err != nil:
				other.Add(1)
			case status == http.StatusOK:
				ok.Add(1)
			case status == http.StatusConflict:
				conflict.Add(1)
			case status == http.StatusTooManyRequests:
				limited.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d limited=%d other=%d", ok.Load(), conflict.Load(), limited.Load(), other.Load())
	if ok.Load() == 1 && other.Load() == 0 {
		return Result{Status: "PASS", Note: note}
	}
	return Result{Status: "FAIL", Note: note}
}

func convertRequest(ctx context.Context, r *Runner) Result {
	if r.requestID == "" {
		return skipNoRequest()
	}
	status, body, latency, err := r.call(ctx, http.MethodPatch, "/api/admin/service-requests/"+r.requestID, map[string]any{"status": "Converted"})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	jobID, _ := body["convertedJobId"].(string)
	if jobID == "" {
		return Result{Status: "FAIL", Latency: latency, Note: "no convertedJobId"}
	}
	r.jobID = jobID
	return Result{Status: "PASS", Latency: latency, Note: jobID}
}

func checkEvents(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.requestID == "" {
		return Result{Status: "SKIP", Note: "db or request missing"}
	}
	var version, events int
	err := r.db.QueryRow(ctx, `
		SELECT sr.version, (SELECT COUNT(*) FROM service_request_events e WHERE e.request_id = sr.id)
		FROM service_requests sr WHERE sr.id = $1`, r.requestID).Scan(&version, &events)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note := fmt.Sprintf("version=%d events=%d", version, events)
	if events < version+1 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

func concurrentConvert(ctx context.Context, r *Runner) Result {
	id, _, res := r.create(ctx, "pickup")
	if res.Status != "PASS" {
		return res
	}
	if status, _, _, err := r.call(ctx, http.MethodPatch, "/api/admin/service-requests/"+id, map[string]any{"trackingStatus": "Received"}); err != nil || status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("receive: status=%d err=%v", status, err)}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			status, _, _, err := r.call(gctx, http.MethodPatch, "/api/admin/service-requests/"+id, map[string]any{"status": "Converted"})
			if err != nil {
				return err
			}
			if status != http.StatusOK && status != http.StatusConflict {
				return fmt.Errorf("unexpected status %d", status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	if r.db == nil {
		return Result{Status: "PASS", Note: "job count not checked (no db)"}
	}
	var jobs int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM job_tickets WHERE request_id = $1", id).Scan(&jobs); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if jobs != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("jobs=%d", jobs)}
	}
	return Result{Status: "PASS", Note: "jobs=1"}
}

func intakeLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, http.MethodPost, "/api/service-requests", newRequestBody("service_center"))
				if err != nil || status != http.StatusCreated {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) version(ctx context.Context, id string) (int, error) {
	status, body, _, err := r.call(ctx, http.MethodGet, "/api/admin/service-requests/"+id, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("get request: status=%d", status)
	}
	req, _ := body["request"].(map[string]any)
	v, _ := req["version"].(float64)
	return int(v), nil
}

func (r *Runner) patchExpect(ctx context.Context, body map[string]any, want int) Result {
	if r.requestID == "" {
		return skipNoRequest()
	}
	return r.expect(ctx, http.MethodPatch, "/api/admin/service-requests/"+r.requestID, body, want)
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, want int) Result {
	status, resp, latency, err := r.call(ctx, method, path, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", status)
	if msg, ok := resp["error"].(string); ok && status != want {
		note += " " + msg
	}
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: note}
	}
	return Result{Status: "PASS", Latency: latency, Note: note}
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, map[string]any, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "bench")

	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, latency, err
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, latency, nil
}
