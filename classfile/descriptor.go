package classfile

// SplitDescriptor breaks a full "(params)return" method descriptor into its
// parameter-type descriptors and its return-type descriptor. Used by the
// rewriter and helper packages to compute local-variable slot layout and
// operand-stack widths when synthesizing new code (spec §4.5, §4.6).
func SplitDescriptor(descriptor string) (params []string, ret string) {
	if len(descriptor) == 0 || descriptor[0] != '(' {
		return nil, descriptor
	}
	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		start := i
		i = skipFieldType(descriptor, i)
		if i <= start {
			break // malformed; bail out with what we have
		}
		params = append(params, descriptor[start:i])
	}
	if i < len(descriptor) && descriptor[i] == ')' {
		ret = descriptor[i+1:]
	}
	return params, ret
}

// skipFieldType returns the index just past one field-type descriptor
// starting at i, or i itself if the descriptor is malformed there.
func skipFieldType(d string, i int) int {
	start := i
	for i < len(d) && d[i] == '[' {
		i++
	}
	if i >= len(d) {
		return start
	}
	switch d[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1
	case 'L':
		j := i
		for j < len(d) && d[j] != ';' {
			j++
		}
		if j >= len(d) {
			return start
		}
		return j + 1
	default:
		return start
	}
}

// SlotWidth reports how many local-variable (or operand-stack) slots a
// single field-type descriptor occupies: 2 for long/double, 1 for
// everything else (spec's "category 1 / category 2" JVM type split).
func SlotWidth(fieldType string) int {
	if fieldType == "J" || fieldType == "D" {
		return 2
	}
	return 1
}

// IsReferenceType reports whether a field-type descriptor names a reference
// type (array or class instance), as opposed to a primitive.
func IsReferenceType(fieldType string) bool {
	return len(fieldType) > 0 && (fieldType[0] == 'L' || fieldType[0] == '[')
}

// JoinDescriptor is SplitDescriptor's inverse: it assembles a "(params)ret"
// method descriptor from an ordered parameter-type list and a return-type
// descriptor.
func JoinDescriptor(params []string, ret string) string {
	d := "("
	for _, p := range params {
		d += p
	}
	return d + ")" + ret
}

// ParamSlots computes the total local-variable slot width of an ordered
// parameter-type list, i.e. the number of local-variable indices they
// collectively occupy when laid out starting at some base index.
func ParamSlots(params []string) int {
	n := 0
	for _, p := range params {
		n += SlotWidth(p)
	}
	return n
}
