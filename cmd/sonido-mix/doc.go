// Command sonido-mix runs the adaptive mixing loop against a WAV file or a
// synthetic pulse track and drives a simulated console. It also inspects
// learned Q-tables and manages the configuration file.
package main
