package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSignatureTypes(t *testing.T) {
	t.Parallel()

	signature := DefaultSignature()

	require.Equal(t, "string", signature.Inputs["island"])
	require.Equal(t, "string", signature.Inputs["sex"])
	require.Equal(t, "double", signature.Inputs["culmen_length_mm"])
	require.Equal(t, "double", signature.Inputs["body_mass_g"])

	require.Equal(t, "string", signature.Outputs["prediction"])
	require.Equal(t, "double", signature.Outputs["confidence"])

	require.Equal(t, "boolean", signature.Params["data_capture"])
}

func TestInferSignatureTypeMapping(t *testing.T) {
	t.Parallel()

	signature := InferSignature(
		map[string]any{"count": 3, "wide": int64(9), "flag": true, "name": "x", "ratio": 0.5},
		nil,
		nil,
	)

	require.Equal(t, "long", signature.Inputs["count"])
	require.Equal(t, "long", signature.Inputs["wide"])
	require.Equal(t, "boolean", signature.Inputs["flag"])
	require.Equal(t, "string", signature.Inputs["name"])
	require.Equal(t, "double", signature.Inputs["ratio"])

	require.Nil(t, signature.Outputs)
	require.Nil(t, signature.Params)
}
