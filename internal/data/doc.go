// Package data defines the shared data objects bound to activity requirements.
//
// Every object carries a mutable identifier, a type name and a read/write lock.
// Objects are shared by reference between activities and other services; code
// that replaces an object's contents in place must hold its exclusive lock for
// the duration of the change, which Guard does on every exit path.
package data
