package explorer

import (
	"context"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/metrics"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// LedgerStats rebuilds dispatch counters from the persisted ledger, so a
// fresh process can report on every call ever made. Health counters are not
// part of the ledger and stay zero.
func (e *Explorer) LedgerStats(ctx context.Context) (*metrics.Snapshot, error) {
	ids, err := e.ledger.Endpoints(ctx)
	if err != nil {
		return nil, err
	}

	c := metrics.New()
	for _, id := range ids {
		endpointType := "deleted"
		if ep, err := e.endpoints.Get(id); err == nil {
			endpointType = string(ep.Type)
		}
		for rec, err := range e.ledger.Records(ctx, id) {
			if err != nil {
				return nil, err
			}
			c.RecordDispatch(endpointType, rec.Status, time.Duration(rec.ElapsedMs)*time.Millisecond, recordErrorType(rec))
			c.RecordLedgerAppend()
		}
	}
	c.SetEndpoints(int64(e.endpoints.Len()))
	return c.Snapshot(), nil
}

// recordErrorType recovers the error category of a ledger entry from its
// stored message and status.
func recordErrorType(rec model.APIQueryRecord) string {
	switch {
	case rec.Error == "":
		return ""
	case rec.Error == "timeout":
		return errors.Timeout.String()
	case rec.Error == "cancelled":
		return errors.Cancelled.String()
	case rec.Status > 0:
		return errors.Protocol.String()
	case rec.ElapsedMs == 0:
		// rejected before any network attempt
		return errors.Validation.String()
	default:
		return errors.Transport.String()
	}
}
