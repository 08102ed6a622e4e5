// Package api calls the Web API with client-side rate control.
//
// HTTPConnector sends every request through a ratelimit.RateController
// keyed by the token's team, then decodes the {"ok": ...} envelope into a
// typed response. Rate limited responses (HTTP 429 or "ratelimited") are
// retried up to RateControlConfig.MaxRetries, honoring Retry-After.
//
//	rc := ratelimit.DefaultRateControlConfig()
//	connector, err := api.NewHTTPConnector(api.ConnectorConfig{RateControl: &rc})
//	client := api.NewClient(connector)
//
//	session := client.OpenSession(api.NewToken(os.Getenv("SLACK_BOT_TOKEN")))
//	resp, err := session.ChatPostMessage(ctx, &api.ChatPostMessageRequest{
//	    Channel: "C0123",
//	    Text:    "hello",
//	})
package api
