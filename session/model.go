package session

// Reason records why a session was deactivated. Stored as a single byte
// in the encoded record so revocation can patch it in place.
type Reason uint8

const (
	// ReasonNone marks a live session.
	ReasonNone Reason = iota
	// ReasonUserLogout is a single-device logout requested by the user.
	ReasonUserLogout
	// ReasonAllDevices is a revoke-all or revoke-other-sessions sweep.
	ReasonAllDevices
	// ReasonPasswordReset is the invalidation cascade after a password reset.
	ReasonPasswordReset
	// ReasonAccountDeleted is the invalidation cascade after account deletion.
	ReasonAccountDeleted
	// ReasonAdminForced is an administrator-triggered forced logout.
	ReasonAdminForced
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonUserLogout:
		return "user_logout"
	case ReasonAllDevices:
		return "all_devices"
	case ReasonPasswordReset:
		return "password_reset"
	case ReasonAccountDeleted:
		return "account_deleted"
	case ReasonAdminForced:
		return "admin_forced"
	default:
		return "unknown"
	}
}

// Session is one device-bound session record.
type Session struct {
	SessionID string
	UserID    string

	IP         string
	UserAgent  string
	Role       string
	DeviceHash [32]byte

	CreatedAt      int64
	LastActivityAt int64
	ExpiresAt      int64
	LogoutAt       int64

	Active       bool
	LogoutReason Reason
}

// Live reports whether the session is usable at the given unix time.
func (s *Session) Live(nowUnix int64) bool {
	return s != nil && s.Active && s.ExpiresAt > nowUnix
}
