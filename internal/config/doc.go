// Package config builds the AODE configuration registry. Settings are read from
// an injectable source (process environment, optionally layered over a .env
// file), combined with the data-source catalog, and validated once. Every
// problem found is reported together so operators can fix a deployment in one
// pass. A successfully built Registry is immutable and safe for concurrent use.
package config
