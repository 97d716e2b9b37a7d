package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// Cmd is the availability command group
var Cmd = &cobra.Command{
	Use:     "availability",
	Short:   "Manage availability windows",
	Long:    `Publish, list, block and remove the windows clients can book into.`,
	Aliases: []string{"avail"},
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(blockCmd)
	Cmd.AddCommand(openCmd)
	Cmd.AddCommand(deleteCmd)
}

// parseLocalTime reads RFC 3339 or "YYYY-MM-DD HH:MM" in tz.
func parseLocalTime(value, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	loc, err := sharedDomain.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD HH:MM", value)
}

func parseOptionalID(value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid ID %q: %w", value, err)
	}
	return &id, nil
}
