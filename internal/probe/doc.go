// Package probe checks whether a device answers on the network.
//
// Three adapters are provided: the system ping command, a native ICMP echo and a
// TCP connect. A probe answers reachable or not; an error means the adapter itself
// failed and the caller treats the device as unreachable.
package probe
