// Package gbdt implements gradient-boosted decision trees for binary
// classification, together with stratified cross-validation, exact TreeSHAP
// attribution and a versioned on-disk artifact format.
//
// # Training
//
//	clf := gbdt.NewGBDTClassifier().
//	    WithFeatureNames([]string{"age", "sex", "trestbps", "fbs"})
//	if err := clf.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//	proba, _ := clf.PredictProba(Xtest)
//
// DefaultParams trains 200 depth-4 trees with learning rate 0.05, 80% row and
// column subsampling and seed 42. A fixed seed makes training bit-for-bit
// reproducible.
//
// # Cross-validation
//
//	report, err := gbdt.CrossValidate(ctx, gbdt.DefaultParams(), X, y,
//	    gbdt.NewStratifiedKFold(5, true, 42), gbdt.CVOptions{Workers: 4})
//	fmt.Print(report)
//
// # Attribution
//
//	explainer, _ := gbdt.NewTreeSHAP(clf.Model)
//	exp, _ := explainer.Explain(row)
//	// exp.BaseValue + Σ exp.Values == exp.RawScore
//
// # Persistence
//
//	_, err := gbdt.SaveModel(clf.Model, "models/heart.bin")
//	m, header, err := gbdt.LoadModel("models/heart.bin")
package gbdt
