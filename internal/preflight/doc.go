// Package preflight provides readiness checks for the host resources proxima
// depends on: the state directory, the routing daemon config, the mesh
// interface and the external programs it runs.
//
// These checks run in two contexts:
//   - daemonrun logs them once at startup so a misconfigured host is visible
//     before the first discover request fails.
//   - The CLI "proxima status" command renders them as System Checks and
//     Dependencies sections.
//
// Checks never change system state.
package preflight
