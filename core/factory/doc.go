// Package factory provides a small generic registry used to build pluggable
// components, such as metrics sinks and trace stores, from configuration.
// A component is selected by a type string and configured by a raw map that
// the factory decodes into its own struct:
//
//	reg := factory.NewRegistry[trace.Store]()
//	reg.Register("jsonl", func(conf map[string]any) (trace.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return trace.NewJSONLStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "trace.jsonl"}})
package factory
