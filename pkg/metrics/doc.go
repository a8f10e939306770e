// Package metrics exposes session store activity to Prometheus.
//
//	collector := metrics.NewCollector(prometheus.DefaultRegisterer, "sessiond")
//	mw := session.Middleware(factory,
//		session.WithStoreOptions(session.WithObserver(collector)),
//	)
package metrics
