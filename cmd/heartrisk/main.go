// Command heartrisk trains, evaluates and serves the heart-disease risk model.
//
//	heartrisk train --config heartrisk.yaml
//	heartrisk evaluate --folds 5
//	heartrisk serve
//	heartrisk explain
//	heartrisk runs
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
