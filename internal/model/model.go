package model

import "gorgonia.org/tensor"

// Model defines the training functionality required by the driver.
type Model interface {
	Step(inputs, labels *tensor.Dense) (float64, error)
	Loss(inputs, labels *tensor.Dense) (float64, error)
	ErrorRate(inputs, labels *tensor.Dense) (float64, error)
}
