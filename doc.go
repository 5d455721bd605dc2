// Package propval trains a property price regression model and serves its
// predictions.
//
// A training run loads a train/test pair of tabular datasets, resolves the
// feature columns, fits a two-stage pipeline (target encoding of the
// categorical columns followed by gradient-boosted regression trees),
// evaluates it on the test split and persists the fitted pipeline, the
// feature schema and the metrics. The model service loads those artifacts
// lazily and scores single rows; the HTTP API and the CLI are thin adapters
// on top.
//
// # Quick Start
//
// Train from a configuration document:
//
//	propval train config/training.yaml
//
// Serve the result:
//
//	PROPERTY_FRIENDS_API_KEY=secret propval serve --port 8000
//	curl -H 'X-API-KEY: secret' -d '{"type":"casa","sector":"vitacura",...}' localhost:8000/predict
//
// The same flow from Go:
//
//	cfg, err := config.LoadTrainingConfig("config/training.yaml")
//	if err != nil {
//	    return err
//	}
//	res, err := training.Run(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Metrics)
//
//	svc := service.New(cfg.ModelPath(), cfg.FeatureStorePath())
//	price, err := svc.Predict(map[string]any{"type": "casa", "sector": "vitacura", ...})
//
// # Packages
//
//   - dataset: named, mixed-kind tabular frames
//   - datasource: CSV and SQLite train/test sources behind a registry
//   - config: training and API settings (viper)
//   - features: feature column resolution
//   - preprocessing: target encoder
//   - sklearn/ensemble: gradient-boosted regression trees
//   - pipeline: column transformer and the fitted pipeline
//   - metrics: MAE, MAPE, RMSE
//   - artifact: atomic artifact persistence and loading
//   - report: evaluation plots
//   - training: the training state machine
//   - service: the lazily loaded model service
//   - api: gin HTTP transport
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Error Handling
//
// Every failure is one of the typed errors in pkg/errors and carries a
// stack trace. errors.KindOf classifies an error for the transport layer.
package propval
