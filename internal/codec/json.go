// Package codec centraliza la serialización JSON del cliente.
// Todo el tráfico con la API pasa por acá (json-iterator compatible con encoding/json).
package codec

import jsoniter "github.com/json-iterator/go"

var (
	// JSON es la instancia que usa todo el módulo.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	Marshal       = JSON.Marshal
	MarshalIndent = JSON.MarshalIndent
	Unmarshal     = JSON.Unmarshal
	NewDecoder    = JSON.NewDecoder
	NewEncoder    = JSON.NewEncoder
)

// RawMessage es un alias para payloads diferidos.
type RawMessage = jsoniter.RawMessage
