// Package heartrisk is a heart-disease risk classifier: a gradient-boosted
// tree model trained on a small clinical table, evaluated with stratified
// k-fold cross-validation, persisted as a checksummed artifact and served
// over HTTP with exact TreeSHAP attributions.
//
// # Layout
//
//   - sklearn/gbdt: trainer, model, StratifiedKFold, CrossValidate, TreeSHAP and
//     the typed model store
//   - core/model: estimator interfaces, fitted-state tracking and the artifact
//     envelope
//   - metrics: accuracy, precision, recall, F1, ROC AUC, log loss, Brier score
//   - preprocessing: median imputation
//   - internal/dataset: CSV ingestion and the feature/label split
//   - internal/training: cross-validate, fit, save, record
//   - internal/inference: request mapping, risk tiers, hot-swappable model handle
//   - internal/server: echo HTTP transport
//   - internal/registry: bbolt history of training runs
//   - internal/telemetry: Prometheus metrics
//   - internal/plots: importance charts
//   - internal/config: YAML, .env and HEARTRISK_* settings
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//   - cmd/heartrisk: the CLI
//
// # Quick start
//
//	heartrisk train --data heart_disease.csv
//	heartrisk explain --plot importance.png
//	heartrisk serve
//	curl -s localhost:5001/predict-with-attribution \
//	    -d '{"age":55,"sex":"male","systolicBP":140,"fbs":0}'
//
// Probabilities below 0.3 are reported as low risk, below 0.6 as moderate and
// anything else as high.
package heartrisk
