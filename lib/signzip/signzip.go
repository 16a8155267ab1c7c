/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package signzip re-signs a zip archive (JAR, APK or OTA update) so that
// the Android recovery's mincrypt verifier accepts it: SHA1 digests, a JAR
// signing triad of MANIFEST.MF, CERT.SF and CERT.RSA, and RSA signatures
// with the exact padding recovery expects.
package signzip

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Breaktrapper/zip-signer/lib/atomicfile"
	"github.com/Breaktrapper/zip-signer/lib/keymaterial"
	"github.com/Breaktrapper/zip-signer/lib/mincrypt"
	"github.com/Breaktrapper/zip-signer/lib/zipfile"
)

// ErrSameFile rejects a run whose input and output identifiers are equal,
// before any I/O happens.
var ErrSameFile = errors.New("input and output files are the same, specify a different name for the output")

// SignaturePrimitive is the init/update/sign collaborator that turns the
// signature file bytes into a raw signature the target verifier accepts.
type SignaturePrimitive interface {
	InitSign(key crypto.PrivateKey) error
	Update(data []byte)
	Sign() ([]byte, error)
}

// ZipSigner drives the signing pipeline. A single instance may be reused
// for sequential runs; Cancel may be called from any goroutine and is
// observed cooperatively at unit boundaries within the current run.
type ZipSigner struct {
	hub      listenerHub
	canceled atomic.Bool

	encoder      BlockEncoder
	encoderName  string
	keepPartial  bool
	logger       zerolog.Logger
	newPrimitive func() SignaturePrimitive
}

type Option func(*ZipSigner)

// WithLogger attaches a structured logger; by default runs are silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *ZipSigner) { s.logger = logger }
}

// WithBlockEncoder injects the signature block strategy directly, skipping
// the registry lookup.
func WithBlockEncoder(enc BlockEncoder) Option {
	return func(s *ZipSigner) { s.encoder = enc }
}

// WithBlockEncoderName selects which registered encoder to resolve when no
// template is supplied.
func WithBlockEncoderName(name string) Option {
	return func(s *ZipSigner) { s.encoderName = name }
}

// KeepPartialOutput commits whatever was written before a fatal error to
// the destination path, for diagnosis. Canceled runs never leave output
// regardless of this setting.
func KeepPartialOutput(keep bool) Option {
	return func(s *ZipSigner) { s.keepPartial = keep }
}

// WithSignaturePrimitive overrides the signing collaborator. The default
// is the mincrypt-compatible SHA1/RSA primitive.
func WithSignaturePrimitive(factory func() SignaturePrimitive) Option {
	return func(s *ZipSigner) { s.newPrimitive = factory }
}

func New(opts ...Option) *ZipSigner {
	s := &ZipSigner{
		encoderName:  DefaultBlockEncoderName,
		logger:       zerolog.Nop(),
		newPrimitive: func() SignaturePrimitive { return mincrypt.New() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cancel requests a cooperative stop of the in-flight run. It is not an
// error: the run returns nil and IsCanceled reports true.
func (s *ZipSigner) Cancel() {
	s.canceled.Store(true)
}

func (s *ZipSigner) IsCanceled() bool {
	return s.canceled.Load()
}

func (s *ZipSigner) AddProgressListener(l ProgressListener) {
	s.hub.Subscribe(l)
}

func (s *ZipSigner) RemoveProgressListener(l ProgressListener) {
	s.hub.Unsubscribe(l)
}

// runState tracks the orchestrator's position in the pipeline, mostly for
// logging and post-mortem context.
type runState int

const (
	stateInit runState = iota
	stateManifestBuilt
	stateSignatureFileBuilt
	stateSigned
	stateBlockAssembled
	stateEntriesCopied
	stateClosed
	stateCanceled
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateManifestBuilt:
		return "manifest-built"
	case stateSignatureFileBuilt:
		return "signature-file-built"
	case stateSigned:
		return "signed"
	case stateBlockAssembled:
		return "block-assembled"
	case stateEntriesCopied:
		return "entries-copied"
	case stateClosed:
		return "closed"
	case stateCanceled:
		return "canceled"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// run is the transient per-call state: work unit accounting plus the
// current pipeline position. Never reused across runs.
type run struct {
	s     *ZipSigner
	log   zerolog.Logger
	state runState
	total int
	done  int
}

func (r *run) to(state runState) {
	r.state = state
	r.log.Debug().Stringer("state", state).Msg("signing state")
}

func (r *run) isCanceled() bool {
	return r.s.canceled.Load()
}

// progress consumes one work unit and broadcasts the new percentage.
func (r *run) progress(priority Priority, message string) {
	r.done++
	percent := 0
	if r.total > 0 {
		percent = 100 * r.done / r.total
	}
	r.s.hub.publish(ProgressEvent{Priority: priority, Message: message, Percent: percent})
}

// SignZip signs the archive at inputPath and writes the result to
// outputPath. template may be nil, in which case a block encoder must be
// available. A canceled run returns nil with no output file on disk.
func (s *ZipSigner) SignZip(cert *x509.Certificate, key crypto.PrivateKey, template []byte, inputPath, outputPath string) error {
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return ErrSameFile
	}
	s.hub.publish(ProgressEvent{Priority: PriorityImportant, Message: "Parsing the input's central directory"})
	input, err := zipfile.Open(inputPath)
	if err != nil {
		return err
	}
	defer input.Close()
	return s.SignEntries(cert, key, template, input.Entries, outputPath)
}

// SignZipWithKeyMaterial is SignZip with the key, certificate and optional
// template bundled together.
func (s *ZipSigner) SignZipWithKeyMaterial(km *keymaterial.KeyMaterial, inputPath, outputPath string) error {
	return s.SignZip(km.Certificate, km.PrivateKey, km.SignatureBlockTemplate, inputPath, outputPath)
}

// SignZipWithKeystore signs using a certificate and key pulled from a Java
// keystore, as an alternative key material source.
func (s *ZipSigner) SignZipWithKeystore(keystorePath, storeType, storePassword, alias, keyPassword, inputPath, outputPath string) error {
	km, err := keymaterial.LoadKeystore(keystorePath, storeType, storePassword, alias, keyPassword)
	if err != nil {
		return err
	}
	return s.SignZipWithKeyMaterial(km, inputPath, outputPath)
}

// SignEntries signs a pre-read entry set. Entries are consumed in
// name-sorted order no matter how the map iterates.
func (s *ZipSigner) SignEntries(cert *x509.Certificate, key crypto.PrivateKey, template []byte, entries map[string]*zipfile.Entry, outputPath string) error {
	s.canceled.Store(false)
	r := &run{
		s:   s,
		log: s.logger.With().Str("run_id", uuid.NewString()).Str("output", outputPath).Logger(),
	}
	r.to(stateInit)

	// Any time at least an hour past the certificate's validity start.
	// Every output entry gets this fixed timestamp so that re-signing the
	// same content produces a byte-identical archive, which keeps
	// incremental OTAs small.
	timestamp := cert.NotBefore.Add(time.Hour)

	for _, entry := range entries {
		if !Excluded(entry) {
			r.total += 3 // digest for manifest, digest in sig file, copy data
		}
	}
	r.total++ // signature block generation

	out, err := atomicfile.New(outputPath)
	if err != nil {
		return r.fail(err, nil)
	}
	defer out.Close()
	w := zipfile.NewWriter(out)

	manifest, err := r.addDigestsToManifest(entries)
	if err != nil {
		return r.fail(err, out)
	}
	if r.isCanceled() {
		r.to(stateCanceled)
		return nil
	}
	r.to(stateManifestBuilt)
	manifestBytes := manifest.Dump()
	if err := w.AddBytes(ManifestName, manifestBytes, timestamp); err != nil {
		return r.fail(err, out)
	}

	sfBytes, err := r.generateSignatureFile(manifestBytes)
	if err != nil {
		return r.fail(err, out)
	}
	if r.isCanceled() {
		r.to(stateCanceled)
		return nil
	}
	r.to(stateSignatureFileBuilt)
	r.log.Debug().Int("size", len(sfBytes)).Msg("signature file generated")
	if err := w.AddBytes(SignatureName, sfBytes, timestamp); err != nil {
		return r.fail(err, out)
	}

	prim := s.newPrimitive()
	if err := prim.InitSign(key); err != nil {
		return r.fail(err, out)
	}
	prim.Update(sfBytes)
	signature, err := prim.Sign()
	if err != nil {
		return r.fail(err, out)
	}
	r.to(stateSigned)

	r.progress(PriorityNormal, "Generating signature block file")
	block, err := r.writeSignatureBlock(template, signature, cert)
	if err != nil {
		return r.fail(err, out)
	}
	if err := w.AddBytes(BlockName, block, timestamp); err != nil {
		return r.fail(err, out)
	}
	r.to(stateBlockAssembled)
	if r.isCanceled() {
		r.to(stateCanceled)
		return nil
	}

	if err := r.copyFiles(manifest, entries, w, timestamp); err != nil {
		return r.fail(err, out)
	}
	if r.isCanceled() {
		r.to(stateCanceled)
		return nil
	}
	r.to(stateEntriesCopied)

	if err := w.Close(); err != nil {
		return r.fail(err, out)
	}
	if err := out.Commit(); err != nil {
		return r.fail(err, nil)
	}
	r.to(stateClosed)
	r.log.Info().Msg("archive signed")
	return nil
}

// fail marks the run failed. The deferred atomicfile.Close discards the
// partial output unless KeepPartialOutput asked for it to be committed.
func (r *run) fail(err error, out atomicfile.AtomicFile) error {
	r.to(stateFailed)
	r.log.Error().Err(err).Msg("signing failed")
	if r.s.keepPartial && out != nil {
		if err2 := out.Commit(); err2 != nil {
			r.log.Warn().Err(err2).Msg("failed to preserve partial output")
		}
	}
	return err
}

// copyFiles copies every entry named by the manifest to the output, each
// stamped with the run's fixed timestamp, in the manifest's sorted order.
func (r *run) copyFiles(manifest *Manifest, entries map[string]*zipfile.Entry, w *zipfile.Writer, timestamp time.Time) error {
	names := append([]string(nil), manifest.Order...)
	sort.Strings(names)
	for i, name := range names {
		if r.isCanceled() {
			break
		}
		r.progress(PriorityNormal, fmt.Sprintf("Copying zip entry %d of %d", i+1, len(names)))
		entry := entries[name]
		if entry == nil {
			return fmt.Errorf("manifest references missing entry %s", name)
		}
		entry.ModTime = timestamp
		if err := w.Add(entry); err != nil {
			return err
		}
	}
	return nil
}
