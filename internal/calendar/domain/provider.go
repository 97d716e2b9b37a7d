package domain

// ProviderType names the external calendar implementation in use.
type ProviderType string

const (
	// ProviderMock records calls in memory and reports every slot free.
	ProviderMock ProviderType = "mock"
	// ProviderGoogle is Google Calendar (OAuth2 + Calendar REST API).
	ProviderGoogle ProviderType = "google"
	// ProviderApple is Apple Calendar (CalDAV with an app-specific password).
	ProviderApple ProviderType = "apple"
	// ProviderCalDAV is generic CalDAV (Fastmail, Nextcloud, self-hosted).
	ProviderCalDAV ProviderType = "caldav"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// IsValid returns true if the provider type is recognized.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderMock, ProviderGoogle, ProviderApple, ProviderCalDAV:
		return true
	default:
		return false
	}
}

// RequiresCalDAV returns true if the provider speaks CalDAV.
func (p ProviderType) RequiresCalDAV() bool {
	return p == ProviderApple || p == ProviderCalDAV
}

// DisplayName returns a human-readable name for the provider.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderMock:
		return "Mock calendar"
	case ProviderGoogle:
		return "Google Calendar"
	case ProviderApple:
		return "Apple Calendar"
	case ProviderCalDAV:
		return "CalDAV"
	default:
		return string(p)
	}
}
