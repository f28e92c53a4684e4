// Package tess turns paint instructions into triangle meshes.
//
// Every shape is generated twice with identical parameters: a counting pass
// that only tallies vertices and indices, and an emit pass that writes them
// into the storage returned by the caller's allocation callback. The two
// passes must agree exactly; a mismatch is reported as an assertion
// failure.
//
// All emitted triangles are wound so that the cross product
// (b-a)×(c-a) is positive in the y-down coordinate space of the element.
package tess
