/*
Package portalgate is a token-keyed gateway to an academic portal.

A client logs in once through POST /generatetoken and receives an opaque
token. Every later request carries that token instead of credentials; the
gateway resolves it to the authenticated portal session it keeps in memory
and forwards the call.

# Sessions

Tokens expire after a sliding window of inactivity (300 seconds by default).
Each successful resolution moves the window forward. An expired token is
reported once as expired and then forgotten.

# Peers

Several instances can run side by side behind a load balancer. When a token
is unknown locally, the instance asks its siblings in configured order and
adopts the first session one of them holds. Sibling queries are answered from
the sibling's own store only, so a lookup never travels more than one hop.

# Usage

	cfg, err := config.Load("portalgate.yaml")
	if err != nil {
		log.Fatal(err)
	}

	gw, err := portalgate.New(cfg, portalgate.WithLogger(logging.New(slog.LevelInfo)))
	if err != nil {
		log.Fatal(err)
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Fatal(gw.Serve(ctx))
*/
package portalgate
