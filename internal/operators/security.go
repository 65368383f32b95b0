package operators

import (
	"context"
	"fmt"
)

func init() {
	RegisterFunc("encrypt", opEncrypt)
	RegisterFunc("decrypt", opDecrypt)
	RegisterFunc("protection.sign", opSign)
	RegisterFunc("protection.verify", opVerify)
	RegisterFunc("license.valid", opLicenseValid)
}

// opEncrypt implements @encrypt(data, purpose).
func opEncrypt(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Protect == nil {
		return nil, NotConfigured("protection")
	}
	data, purpose, err := securityParams(ctx, call, env)
	if err != nil {
		return nil, err
	}
	return env.Protect.Encrypt(data, purpose)
}

// opDecrypt implements @decrypt(data, purpose).
func opDecrypt(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Protect == nil {
		return nil, NotConfigured("protection")
	}
	data, purpose, err := securityParams(ctx, call, env)
	if err != nil {
		return nil, err
	}
	return env.Protect.Decrypt(data, purpose)
}

// opSign implements @protection.sign(data): HMAC-SHA256 hex signature.
func opSign(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Protect == nil {
		return nil, NotConfigured("protection")
	}
	data, err := env.EvalParamString(ctx, call.RawArgs)
	if err != nil {
		return nil, err
	}
	return env.Protect.Sign(data), nil
}

// opVerify implements @protection.verify(data, signature).
func opVerify(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Protect == nil {
		return nil, NotConfigured("protection")
	}
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @protection.verify(data, signature)")
	}
	data, err := env.EvalParamString(ctx, params[0])
	if err != nil {
		return nil, err
	}
	sig, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}
	return env.Protect.Verify(data, sig), nil
}

// opLicenseValid implements @license.valid.
func opLicenseValid(_ context.Context, _ Call, env *Env) (any, error) {
	if env.License == nil {
		return false, nil
	}
	return env.License.Valid(), nil
}

func securityParams(ctx context.Context, call Call, env *Env) (data, purpose string, err error) {
	params := call.Params()
	if len(params) == 0 {
		return "", "", fmt.Errorf("expected (data, purpose?)")
	}
	data, err = env.EvalParamString(ctx, params[0])
	if err != nil {
		return "", "", err
	}
	purpose = "encryption"
	if len(params) > 1 {
		purpose = Unquote(params[1])
	}
	return data, purpose, nil
}
