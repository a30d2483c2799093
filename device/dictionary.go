package device

import (
	"bytes"
	"sync"

	"spigot/tinycompress"
)

// Constant is one firmware constant exposed through the dictionary.
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration maps symbolic names to small integers, like the
// peripheral kinds accepted by peripheral_attach.
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary builds the identify payload: a JSON object listing the
// firmware version, its constants, every command and response format
// with its id, and any enumerations. The host fetches it in chunks and
// uses it to encode commands, so the encoding must be deterministic.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	registry      *Registry
	version       string
	buildVersions string
	cached        []byte // compressed dictionary, built once
}

// NewDictionary returns a dictionary over the given registry.
func NewDictionary(registry *Registry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		registry:      registry,
		version:       "spigot-" + firmwareVersion,
		buildVersions: "go",
	}
}

const firmwareVersion = "0.1.0"

// AddConstant registers a constant.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
}

// AddEnumeration registers an enumeration. The slice is copied; index
// positions become the wire values.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
}

// SetVersion overrides the reported firmware version.
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// SetBuildVersions overrides the reported toolchain string.
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
}

// Build renders and compresses the dictionary and caches the result.
// Call it once after every command and constant is registered.
func (d *Dictionary) Build() {
	// Fetch the registry maps before taking the dictionary lock so the
	// two locks never nest in both orders.
	commands, responses := d.registry.CommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSONLocked(commands, responses)
	DebugPrintln("[dict] json " + itoa(len(jsonData)) + " bytes")

	var buf bytes.Buffer
	buf.Grow(tinycompress.EncodedLen(len(jsonData)))
	w := tinycompress.NewWriter(&buf)
	if _, err := w.Write(jsonData); err != nil {
		d.cached = jsonData
		return
	}
	if err := w.Close(); err != nil {
		d.cached = jsonData
		return
	}

	compressed := buf.Bytes()
	if len(compressed) == 0 {
		d.cached = jsonData
		return
	}
	DebugPrintln("[dict] compressed " + itoa(len(compressed)) + " bytes")

	d.cached = make([]byte, len(compressed))
	copy(d.cached, compressed)
}

// Generate returns the dictionary bytes, compressed when Build has run.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.registry.CommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(commands, responses)
}

// Chunk returns count bytes of the dictionary starting at offset, or an
// empty slice past the end. The result is always a copy.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Generate()

	if len(data) == 0 || offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// sortStrings orders a small slice in place. The dictionary is built
// once at startup, so a quadratic sort keeps the binary free of the
// sort package on microcontroller targets.
func sortStrings(s []string) {
	for i := 0; i < len(s); i++ {
		for j := i + 1; j < len(s); j++ {
			if s[i] > s[j] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}

func sortInts(s []int) {
	for i := 0; i < len(s); i++ {
		for j := i + 1; j < len(s); j++ {
			if s[i] > s[j] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}

// buildJSONLocked renders the dictionary by hand so the output is
// byte-for-byte stable across builds and runtimes. Caller holds the
// lock.
func (d *Dictionary) buildJSONLocked(commands, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":"`...)
	result = append(result, d.version...)
	result = append(result, `","build_versions":"`...)
	result = append(result, d.buildVersions...)
	result = append(result, `","config":{`...)

	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sortStrings(names)

	for i, name := range names {
		if i > 0 {
			result = append(result, ',')
		}
		result = append(result, '"')
		result = append(result, name...)
		result = append(result, `":"`...)
		result = append(result, valueToString(d.constants[name].Value)...)
		result = append(result, '"')
	}

	result = append(result, `},"commands":{`...)
	result = appendIDMap(result, commands)
	result = append(result, `},"responses":{`...)
	result = appendIDMap(result, responses)
	result = append(result, '}')

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)

		enumNames := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enumNames = append(enumNames, name)
		}
		sortStrings(enumNames)

		for i, name := range enumNames {
			if i > 0 {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, name...)
			result = append(result, `":{`...)

			first := true
			for idx, value := range d.enumerations[name].Values {
				if value == "" {
					continue
				}
				if !first {
					result = append(result, ',')
				}
				result = append(result, '"')
				result = append(result, value...)
				result = append(result, `":`...)
				result = append(result, itoa(idx)...)
				first = false
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	result = append(result, '}')
	return result
}

// appendIDMap writes a format-to-id map ordered by id.
func appendIDMap(result []byte, m map[string]int) []byte {
	ids := make([]int, 0, len(m))
	for _, id := range m {
		ids = append(ids, id)
	}
	sortInts(ids)

	for i, id := range ids {
		for format, fid := range m {
			if fid != id {
				continue
			}
			if i > 0 {
				result = append(result, ',')
			}
			result = append(result, '"')
			result = append(result, format...)
			result = append(result, `":`...)
			result = append(result, itoa(id)...)
			break
		}
	}
	return result
}
