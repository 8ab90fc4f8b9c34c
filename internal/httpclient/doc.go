// Package httpclient issues the JSON API calls made by virtual users.
//
// The package provides:
//   - [NewClient], a shared *http.Client with a connection pool sized for many
//     concurrent sessions and an optional TLS verification toggle
//   - [API], which builds JSON requests against a base URL, injects the bearer
//     token from an [AuthProvider], retries according to a [RetryPolicy] and
//     records one [metrics.Outcome] per attempt
//
// Each virtual user gets its own API view via [API.WithAuth] so credentials are
// never shared, while the transport and its connections are.
//
//	client := httpclient.NewClient(30*time.Second, cfg.Insecure)
//	api, err := httpclient.NewAPI(httpclient.Options{
//		BaseURL:  cfg.TargetURL,
//		Client:   client,
//		Recorder: collector,
//		Retry:    httpclient.NewRetryPolicy(cfg.Retries),
//	})
//	resp, err := api.WithAuth(session).Do(ctx, httpclient.Request{
//		Method: http.MethodGet,
//		Path:   "/api/feed",
//	})
//
// Responses whose status is not accepted come back together with an
// [*HTTPError]; transport failures return a nil Response.
package httpclient
