// Package threading emulates the foreign module's pthread surface on top of
// goroutines and channels.
//
// Foreign mutexes and condition variables are single words the module owns.
// A word is in one of three states: empty (0), pending (a static-initializer
// sentinel requesting a mutex flavor), or ready (a handle into the shim's
// object table). Every operation materializes an empty or pending word on
// first use. Materialization claims the word with a compare-and-swap before
// allocating, so racing threads always agree on one host object.
//
// Threads created by the module run as goroutines. Each carries its foreign
// thread id in its context (see hostcall.WithThread); mutex ownership,
// thread-specific values and pthread_self all key on that id.
package threading
