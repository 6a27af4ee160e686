// Package teneo is the Go client SDK for the Teneo coordinator
// protocol: a persistent, authenticated, bidirectional message exchange
// between a secp256k1 keypair holder and a remote coordinator over a
// WebSocket.
//
// The Client composes three concerns:
//
//   - a long-lived transport session with challenge-response wallet
//     authentication, heartbeats, and automatic reconnection under
//     configurable backoff;
//   - a dispatch core that validates inbound frames per type,
//     correlates replies to in-flight requests, deduplicates repeated
//     deliveries, and keeps an evented agent and room registry in sync
//     with the coordinator;
//   - an outbound webhook fan-out that mirrors selected events to an
//     HTTP endpoint through a bounded retrying queue guarded by a
//     circuit breaker, with egress URL validation.
//
// Minimal use:
//
//	client, err := teneo.New(teneo.Config{
//		URL:        "wss://coordinator.example/ws",
//		PrivateKey: os.Getenv("TENEO_PRIVATE_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Destroy()
//
//	client.On(teneo.EventAgentResponse, func(payload any) {
//		resp := payload.(*teneo.AgentResponse)
//		fmt.Println(resp.Humanized)
//	})
//
//	if err := client.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	resp, err := client.SendMessage(ctx, "hello", &teneo.SendOptions{WaitForResponse: true})
package teneo
