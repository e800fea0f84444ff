// Package infra contains technical adapters such as the MQTT bridge, the
// metrics exporters, map raster files and error reporting. These packages
// should depend only on the interfaces defined in the core packages.
package infra
