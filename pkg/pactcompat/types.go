package pactcompat

import (
	"github.com/form3tech-oss/pact-compat/internal/app/configuration"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/detector"
)

type (
	CompareRequest     = configuration.CompareRequest
	VerifyRequest      = configuration.VerifyRequest
	DetectOptions      = detector.Options
	Report             = detector.Report
	Change             = contract.Change
	ContractTestResult = contract.ContractTestResult
	MatrixEntry        = contract.MatrixEntry
)
