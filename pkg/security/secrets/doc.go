// Package secrets resolves operator-supplied secrets and protects
// mirror credentials at rest.
//
// Two providers cover the deployment models in use: EnvProvider for
// plain environment variables and FileProvider for one-file-per-secret
// directories such as Kubernetes secret mounts, with optional fsnotify
// watching so rotated files take effect without a restart. Manager
// chains providers first-wins behind a TTL cache and can substitute
// ${secret:name} references inside configuration text.
//
// AESEncryptor is the at-rest side: AES-256-GCM over a PBKDF2-derived
// key, used to seal mirror Basic-auth passwords before they reach the
// store.
package secrets
