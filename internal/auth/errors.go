package auth

import (
	"errors"
	"fmt"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
)

// Kind classifies every way an authentication ceremony can fail. Ceremony
// errors never escape the orchestrator boundary as raw errors; they are
// converted to a *Error carrying one of these kinds and handled locally.
type Kind int

const (
	// KindUnknown marks an unexpected failure (a bug, not a ceremony outcome)
	KindUnknown Kind = iota
	// KindInvalidCredentials means wrong identifier or secret, never revealing which
	KindInvalidCredentials
	// KindChallengeUnavailable means the options endpoint could not issue a challenge
	KindChallengeUnavailable
	// KindCeremonyAborted means the user or the platform cancelled the authenticator prompt
	KindCeremonyAborted
	// KindUnsupportedEnvironment means no credential capability (or an insecure context)
	KindUnsupportedEnvironment
	// KindVerificationFailed means the server rejected the ceremony response
	KindVerificationFailed
	// KindNetworkFailure means the backend never responded
	KindNetworkFailure
	// KindServerError means the backend answered with a 5xx
	KindServerError
	// KindOriginMismatch means a cross-window message failed origin validation.
	// Never surfaced to the user; it is a silent security boundary.
	KindOriginMismatch
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindChallengeUnavailable:
		return "challenge_unavailable"
	case KindCeremonyAborted:
		return "ceremony_aborted"
	case KindUnsupportedEnvironment:
		return "unsupported_environment"
	case KindVerificationFailed:
		return "verification_failed"
	case KindNetworkFailure:
		return "network_failure"
	case KindServerError:
		return "server_error"
	case KindOriginMismatch:
		return "origin_mismatch"
	default:
		return "unknown"
	}
}

// UserMessage returns the message shown to the user for this failure class.
// Messages match the original deployment's Japanese UI copy.
func (k Kind) UserMessage() string {
	switch k {
	case KindInvalidCredentials:
		return "ユーザー名またはパスワードが違います。"
	case KindChallengeUnavailable:
		return "認証オプションの取得に失敗しました。時間をおいて再度お試しください。"
	case KindCeremonyAborted:
		return "パスキー操作がキャンセルされました。"
	case KindUnsupportedEnvironment:
		return "この環境ではパスキーを利用できません。"
	case KindVerificationFailed:
		return "認証に失敗しました。"
	case KindNetworkFailure:
		return "サーバーに接続できません。ネットワークをご確認ください。"
	case KindServerError:
		return "サーバーエラーが発生しました。時間をおいて再度お試しください。"
	default:
		return "認証に失敗しました。"
	}
}

// Error is a classified ceremony failure
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a failure kind
func E(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from err, KindUnknown when err was not
// produced by a ceremony.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

// Classify maps backend client errors onto the taxonomy, with fallback as
// the kind for non-5xx responses (which endpoint-specific code decides:
// invalid credentials for login, verification failed for verify).
func Classify(err error, fallback Kind) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, api.ErrNoResponse) {
		return E(KindNetworkFailure, err)
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.IsServerError() {
			return E(KindServerError, err)
		}
		return E(fallback, err)
	}
	return E(KindUnknown, err)
}
