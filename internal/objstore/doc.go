// Package objstore defines the storage capabilities the streaming engines
// consume, the value types exchanged with backends, and the typed errors
// surfaced by Sink and Source.
package objstore
