package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/runlens/runlens/internal/domain/event"
)

// Validate checks whether data is structurally sound for the given
// subject. Unknown subjects pass validation (future-proof for new
// message types).
//
// Event subjects are validated with the wire codec rather than
// json.Valid because batches may arrive as NDJSON, which is not a
// single JSON document.
func Validate(subject string, data []byte) error {
	switch {
	case strings.HasPrefix(subject, SubjectRunEvents+"."):
		if _, err := event.DecodeBatch(data); err != nil {
			return fmt.Errorf("malformed event batch on %s: %w", subject, err)
		}
		return nil

	case subject == SubjectRunControlReset:
		var p ResetPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.RunID == "" {
			return fmt.Errorf("reset payload on %s missing run_id", subject)
		}
		return nil

	default:
		return nil
	}
}
