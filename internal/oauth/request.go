package oauth

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// ResponseTypeIDToken asks Google for an ID token in the redirect fragment
const ResponseTypeIDToken = "id_token"

// DefaultScopes are requested on every prompt
var DefaultScopes = []string{"profile", "email"}

// Request is one authorization request. State and Nonce are single use.
type Request struct {
	ClientID     string
	RedirectURI  string
	Scopes       []string
	ResponseType string
	State        string
	Nonce        string
}

func newRequest(clientID, redirectURI string) *Request {
	return &Request{
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scopes:       append([]string(nil), DefaultScopes...),
		ResponseType: ResponseTypeIDToken,
		State:        uuid.NewString(),
		Nonce:        uuid.NewString(),
	}
}

// AuthURL is the Google authorization URL for the request
func (r *Request) AuthURL() string {
	conf := &oauth2.Config{
		ClientID:    r.ClientID,
		RedirectURL: r.RedirectURI,
		Scopes:      r.Scopes,
		Endpoint:    endpoints.Google,
	}
	return conf.AuthCodeURL(r.State,
		oauth2.SetAuthURLParam("response_type", r.ResponseType),
		oauth2.SetAuthURLParam("nonce", r.Nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}
