package anydiffusion

import (
	"errors"
	"math"
	"testing"
)

func TestInvalidConfigs(t *testing.T) {
	tests := []struct {
		Name  string
		Field string
		Make  func() error
	}{
		{"VPNegativeBeta", "BetaD", func() error {
			_, err := NewVPLoss(-1, 0.1, 1e-5)
			return err
		}},
		{"VPZeroEpsilon", "EpsilonT", func() error {
			_, err := NewVPLoss(19.9, 0.1, 0)
			return err
		}},
		{"VPLargeEpsilon", "EpsilonT", func() error {
			_, err := NewVPLoss(19.9, 0.1, 1.5)
			return err
		}},
		{"VEEqualBounds", "SigmaMin", func() error {
			_, err := NewVELoss(1, 1)
			return err
		}},
		{"VEInverted", "SigmaMin", func() error {
			_, err := NewVELoss(100, 0.02)
			return err
		}},
		{"VEInfinite", "SigmaMax", func() error {
			_, err := NewVELoss(0.02, math.Inf(1))
			return err
		}},
		{"EDMZeroStd", "PStd", func() error {
			_, err := NewEDMLoss(-1.2, 0, 0.5)
			return err
		}},
		{"EDMNegativeSigmaData", "SigmaData", func() error {
			_, err := NewEDMLoss(-1.2, 1.2, -0.5)
			return err
		}},
		{"EDMNaNMean", "PMean", func() error {
			_, err := NewEDMLoss(math.NaN(), 1.2, 0.5)
			return err
		}},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			err := test.Make()
			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("expected *ConfigError but got %v", err)
			}
			if configErr.Field != test.Field {
				t.Errorf("expected field %s but got %s", test.Field, configErr.Field)
			}
		})
	}
}

func TestValidConfigs(t *testing.T) {
	if err := DefaultVPLoss().Validate(); err != nil {
		t.Error(err)
	}
	if err := DefaultVELoss().Validate(); err != nil {
		t.Error(err)
	}
	if err := DefaultEDMLoss().Validate(); err != nil {
		t.Error(err)
	}
	if _, err := NewVPLoss(19.9, 0.1, 1); err != nil {
		t.Error(err)
	}
}
