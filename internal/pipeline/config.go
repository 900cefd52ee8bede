package pipeline

import (
	"strings"

	"github.com/yourorg/kysafety/internal/envconf"
)

// Config holds coordinator behaviour.
type Config struct {
	// BroadcastOnApprove sends the KY notification after a committed approve.
	BroadcastOnApprove bool
	// EntryURLTemplate builds the link line; {entryId} and {projectId} are
	// substituted. Empty omits the link.
	EntryURLTemplate string
}

func LoadConfig() Config {
	return Config{
		BroadcastOnApprove: envconf.GetBool("PIPELINE_BROADCAST_ON_APPROVE", false),
		EntryURLTemplate:   envconf.Getenv("PIPELINE_ENTRY_URL_TEMPLATE", ""),
	}
}

func (c Config) entryURL(entryID, projectID string) string {
	if c.EntryURLTemplate == "" {
		return ""
	}
	return strings.NewReplacer("{entryId}", entryID, "{projectId}", projectID).Replace(c.EntryURLTemplate)
}
