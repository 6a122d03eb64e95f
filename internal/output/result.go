package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

const (
	redacted     = "********"
	maxCell      = 60
	maxBodyCell  = 4000
	timestampFmt = time.RFC3339
)

// Redact masks the credentials of ep.
func Redact(ep model.Endpoint) model.Endpoint {
	ep = ep.Clone()
	if ep.Password != "" {
		ep.Password = redacted
	}
	if ep.Token != "" {
		ep.Token = redacted
	}
	return ep
}

// Endpoints is a list of endpoints with credentials masked.
type Endpoints []model.Endpoint

// NewEndpoints redacts eps.
func NewEndpoints(eps ...model.Endpoint) Endpoints {
	out := make(Endpoints, len(eps))
	for i, ep := range eps {
		out[i] = Redact(ep)
	}
	return out
}

// Table implements Tabular.
func (e Endpoints) Table() Table {
	t := Table{
		Empty:   "No endpoints registered",
		Headers: []string{"ID", "NAME", "TYPE", "URL", "STATUS", "TLS", "TAGS"},
	}
	for _, ep := range e {
		status := ep.Status
		if status == "" {
			status = model.StatusUnknown
		}
		t.Rows = append(t.Rows, []string{
			ep.ID, ep.Name, string(ep.Type), ep.URL, status,
			strconv.FormatBool(ep.TLSVerify), strings.Join(ep.Tags, ","),
		})
	}
	return t
}

// Definitions is a list of catalog definitions.
type Definitions []model.APIDefinition

// Table implements Tabular.
func (d Definitions) Table() Table {
	t := Table{
		Empty:   "No API definitions found",
		Headers: []string{"ID", "SERVICE", "METHOD", "PATH", "CATEGORY", "PARAMS"},
	}
	for _, def := range d {
		t.Rows = append(t.Rows, []string{
			truncate(def.ID, maxCell), def.Service, def.Method, truncate(def.Path, maxCell),
			def.Category, strings.Join(def.Params, ","),
		})
	}
	return t
}

// Definition is a single catalog definition.
type Definition model.APIDefinition

// Table implements Tabular.
func (d Definition) Table() Table {
	return keyValues(d.ID,
		"Service", d.Service,
		"Method", d.Method,
		"Path", d.Path,
		"Params", strings.Join(d.Params, ", "),
		"Category", d.Category,
		"Tags", strings.Join(d.Tags, ", "),
		"Description", d.Description,
	)
}

// Response is a dispatched call's result.
type Response model.ExplorerResponse

// Table implements Tabular.
func (r Response) Table() Table {
	return keyValues("Response",
		"Endpoint", r.EndpointID,
		"Log ID", r.LogID,
		"Status", strconv.Itoa(r.Status),
		"Elapsed", fmt.Sprintf("%dms", r.ElapsedMs),
		"Error", r.Error,
		"Body", truncate(body(r.JSON, r.Text), maxBodyCell),
	)
}

func body(v any, text string) string {
	if v == nil {
		return text
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Records is a slice of ledger entries in ledger order.
type Records []model.APIQueryRecord

// Table implements Tabular.
func (r Records) Table() Table {
	t := Table{
		Empty:   "No queries recorded",
		Headers: []string{"TIMESTAMP", "ID", "METHOD", "PATH", "STATUS", "ELAPSED", "ERROR"},
	}
	for _, rec := range r {
		t.Rows = append(t.Rows, []string{
			rec.Timestamp.Format(timestampFmt), rec.ID, rec.Method, truncate(rec.Path, maxCell),
			strconv.Itoa(rec.Status), fmt.Sprintf("%dms", rec.ElapsedMs), truncate(rec.Error, maxCell),
		})
	}
	return t
}

// Inventory is the device scorecard list.
type Inventory []model.DeviceInventory

// Table implements Tabular.
func (inv Inventory) Table() Table {
	t := Table{
		Empty:   "Inventory is empty",
		Headers: []string{"ID", "NAME", "TYPE", "STATUS", "TESTS", "SUCCESS", "RATE", "LAST TESTED"},
	}
	for _, d := range inv {
		last := "never"
		if d.LastTested != nil {
			last = d.LastTested.Format(timestampFmt)
		}
		t.Rows = append(t.Rows, []string{
			d.ID, d.Name, d.Type, d.Status,
			strconv.Itoa(d.TestCount), strconv.Itoa(d.SuccessCount),
			fmt.Sprintf("%.0f%%", d.SuccessRate()*100), last,
		})
	}
	return t
}

// TestResults maps endpoint ids to their connection test outcome.
type TestResults map[string]model.ConnectionTestResult

// Table implements Tabular. Rows are ordered by endpoint id.
func (r TestResults) Table() Table {
	t := Table{
		Empty:   "No endpoints tested",
		Headers: []string{"ENDPOINT", "RESULT", "STATUS", "ELAPSED", "MESSAGE"},
	}
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := r[id]
		result := "FAIL"
		if res.Success {
			result = "OK"
		}
		status := ""
		if res.StatusCode != 0 {
			status = strconv.Itoa(res.StatusCode)
		}
		t.Rows = append(t.Rows, []string{
			id, result, status, fmt.Sprintf("%dms", res.ElapsedMs), truncate(res.Message, maxCell),
		})
	}
	return t
}

// Stats is a metrics snapshot.
type Stats metrics.Snapshot

// Table implements Tabular.
func (s Stats) Table() Table {
	snap := metrics.Snapshot(s)
	t := keyValues("Statistics",
		"Uptime", s.Uptime.Round(time.Second).String(),
		"Requests", strconv.FormatInt(s.RequestsTotal, 10),
		"Errors", strconv.FormatInt(s.ErrorsTotal, 10),
		"Timeouts", strconv.FormatInt(s.TimeoutsTotal, 10),
		"Error rate", fmt.Sprintf("%.1f%%", snap.ErrorRate()*100),
		"Health checks", strconv.FormatInt(s.HealthChecks, 10),
		"Health failures", strconv.FormatInt(s.HealthFailures, 10),
		"Ledger records", strconv.FormatInt(s.LedgerRecords, 10),
		"Endpoints", strconv.FormatInt(s.Endpoints, 10),
		"Avg response", s.AverageResponseTime.String(),
	)
	for _, k := range sortedKeys(s.RequestsByType) {
		t.Rows = append(t.Rows, []string{"Requests (" + k + ")", strconv.FormatInt(s.RequestsByType[k], 10)})
	}
	for _, k := range sortedKeys(s.ErrorCounts) {
		t.Rows = append(t.Rows, []string{"Errors (" + k + ")", strconv.FormatInt(s.ErrorCounts[k], 10)})
	}
	return t
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
