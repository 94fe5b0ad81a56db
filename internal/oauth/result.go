package oauth

import (
	"net/url"
)

// ResultType classifies the outcome of one prompt
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultCancelled
	ResultError
)

func (t ResultType) String() string {
	switch t {
	case ResultSuccess:
		return "success"
	case ResultCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Reasons reported in Result.Reason
const (
	ReasonAccessDenied   = "access_denied"
	ReasonStateMismatch  = "state_mismatch"
	ReasonMissingIDToken = "missing_id_token"
)

// Result is the outcome of one prompt. Only a success carries tokens.
type Result struct {
	Type        ResultType
	IDToken     string
	AccessToken string
	Reason      string
	Description string
}

// ParseRedirect turns the redirect URL into a Result. Parameters are read
// from the fragment first, then the query string.
func ParseRedirect(u *url.URL, wantState string) Result {
	if u == nil {
		return Result{Type: ResultCancelled}
	}
	params := u.Query()
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		for k, v := range frag {
			params[k] = v
		}
	}

	if reason := params.Get("error"); reason != "" {
		return Result{Type: ResultError, Reason: reason, Description: params.Get("error_description")}
	}
	if params.Get("state") != wantState {
		return Result{Type: ResultError, Reason: ReasonStateMismatch}
	}
	idToken := params.Get("id_token")
	if idToken == "" {
		return Result{Type: ResultError, Reason: ReasonMissingIDToken}
	}
	return Result{
		Type:        ResultSuccess,
		IDToken:     idToken,
		AccessToken: params.Get("access_token"),
	}
}
