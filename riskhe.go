/*
Package riskhe implements privacy-preserving risk scoring on top of the CKKS scheme.
A client's health features are encrypted once, a fixed linear model followed by an affine
approximation of the sigmoid is evaluated on the ciphertext, and only the final scalar score
is ever decrypted.

The module is organised in layers, each package providing functionalities for the layers above it:
core/params and core/keys manage the parameters and the key lifecycle, core/heval enforces the
level and scale invariants of the leveled circuit, encoding, circuits/linear, circuits/activation
and decoding implement the individual steps of the circuit, and pipeline and predictor tie them
together into per-request state machines.
*/
package riskhe
