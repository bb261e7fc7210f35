// Package registry provides a concurrent, ordered map used for named
// catalogs such as node factories and data kinds.
//
//	kinds := registry.New[string, Decoder]()
//	kinds.Register("int", decodeInt)
//	for name, dec := range kinds.All() {
//	    fmt.Println(name) // sorted by name
//	}
package registry
