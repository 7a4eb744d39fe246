// Package httpclient provides HTTP client utilities for the volley load generator.
//
// The httpclient package handles request construction and transport setup:
//   - A connection-bounded [http.Client] via [NewClient]
//   - Per-attempt headers and payloads via the [Generator] interface
//   - Request assembly via [RequestBuilder]
//
// # Request Building
//
//	gen, err := httpclient.NewGenerator(cfg.Headers, cfg.Body)
//	if err != nil {
//		return err
//	}
//	builder, err := httpclient.NewRequestBuilder(gen, cfg.PayloadSize)
//	content := builder.Prepare(http.MethodPost) // once per attempt
//	req, err := builder.Build(ctx, http.MethodPost, "https://api.example.com/items", content)
//
// Only POST, PUT and PATCH requests carry a payload. Every attempt gets an
// [RequestIDHeader] unless one is configured explicitly, and its retries
// resend the same id and payload.
//
// # HTTP Client
//
// [NewClient] caps connections per host so the transport never opens more
// sockets than the run's connection budget allows:
//
//	client := httpclient.NewClient(20*time.Second, 500)
package httpclient
