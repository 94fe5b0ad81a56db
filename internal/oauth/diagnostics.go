package oauth

// Diagnostics describes how Google sign-in is set up in this process
type Diagnostics struct {
	Platform    Platform  `json:"platform"`
	Scheme      string    `json:"scheme"`
	ClientIDs   ClientIDs `json:"clientIds"`
	ClientID    string    `json:"clientId,omitempty"`
	RedirectURI string    `json:"redirectUri,omitempty"`
	Ready       bool      `json:"ready"`
	Problem     string    `json:"problem,omitempty"`
}

// Diagnose reports the OAuth setup. flow may be nil when sign-in is disabled.
func Diagnose(platform Platform, scheme string, ids ClientIDs, flow *Flow) Diagnostics {
	d := Diagnostics{
		Platform:  platform,
		Scheme:    scheme,
		ClientIDs: ids,
	}

	clientID, err := ids.Resolve(platform)
	if err != nil {
		d.Problem = err.Error()
		return d
	}
	d.ClientID = clientID

	if flow == nil {
		d.Problem = "google sign-in is disabled"
		return d
	}
	if req := flow.Request(); req != nil {
		d.RedirectURI = req.RedirectURI
	}
	d.Ready = flow.Ready()
	if !d.Ready {
		d.Problem = "authorization request not prepared yet"
	}
	return d
}
