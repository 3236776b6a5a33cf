package opengl

import (
	"unsafe"

	"github.com/chewxy/math32"
	gl "github.com/go-gl/gl/v4.1-core/gl"

	"scene-studio/core"
)

var vertexStride = int(unsafe.Sizeof(core.Vertex{}))

// bindVertexLayout describes core.Vertex to the bound VAO:
// 0 position, 1 normal, 2 uv, 3 color.
func bindVertexLayout() {
	var v core.Vertex
	stride := int32(vertexStride)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(int(unsafe.Offsetof(v.Position))))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(int(unsafe.Offsetof(v.Normal))))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 2, gl.FLOAT, false, stride, gl.PtrOffset(int(unsafe.Offsetof(v.UV))))
	gl.EnableVertexAttribArray(3)
	gl.VertexAttribPointer(3, 4, gl.FLOAT, false, stride, gl.PtrOffset(int(unsafe.Offsetof(v.Color))))
}

// cosAngle converts a spot cone half-angle in radians to its cosine.
func cosAngle(rad float32) float32 {
	return math32.Cos(rad)
}

const meshVertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inNormal;
layout(location = 2) in vec2 inUV;
layout(location = 3) in vec4 inColor;

uniform mat4 mvp;
uniform mat4 model;
uniform mat4 lightViewProj;

out vec4 fragColor;
out vec3 fragNormal;
out vec2 fragUV;
out vec3 fragWorldPos;
out vec4 fragLightSpacePos;

void main() {
    vec4 worldPos     = model * vec4(inPosition, 1.0);
    gl_Position       = mvp * vec4(inPosition, 1.0);
    fragColor         = inColor;
    fragNormal        = mat3(model) * inNormal;
    fragUV            = inUV;
    fragWorldPos      = worldPos.xyz;
    fragLightSpacePos = lightViewProj * worldPos;
}
` + "\x00"

// meshFragSrc is a Cook-Torrance shader lit by directional, point and spot
// lights plus image-based light from an equirectangular env map. The ground
// is drawn as a shadow catcher: only its shadowed part is visible.
const meshFragSrc = `
#version 410 core
in vec4 fragColor;
in vec3 fragNormal;
in vec2 fragUV;
in vec3 fragWorldPos;
in vec4 fragLightSpacePos;

out vec4 outColor;

uniform vec3 ambientColor;

#define MAX_DIR_LIGHTS 4
uniform int  dirLightCount;
uniform vec3 dirLightDir[MAX_DIR_LIGHTS];
uniform vec3 dirLightColor[MAX_DIR_LIGHTS];

#define MAX_POINT_LIGHTS 8
uniform int   pointLightCount;
uniform vec3  pointLightPos[MAX_POINT_LIGHTS];
uniform vec3  pointLightColor[MAX_POINT_LIGHTS];
uniform float pointLightRange[MAX_POINT_LIGHTS];

#define MAX_SPOT_LIGHTS 4
uniform int   spotLightCount;
uniform vec3  spotLightPos[MAX_SPOT_LIGHTS];
uniform vec3  spotLightDir[MAX_SPOT_LIGHTS];
uniform vec3  spotLightColor[MAX_SPOT_LIGHTS];
uniform float spotLightRange[MAX_SPOT_LIGHTS];
uniform float spotLightInner[MAX_SPOT_LIGHTS];
uniform float spotLightOuter[MAX_SPOT_LIGHTS];

uniform vec3 cameraPos;

uniform vec4  matAlbedo;
uniform float matMetallic;
uniform float matRoughness;
uniform vec3  matEmissive;
uniform bool  unlit;

uniform sampler2D albedoTex;
uniform bool      hasAlbedoTex;
uniform sampler2D metallicRoughnessTex;
uniform bool      hasMetallicRoughnessTex;
uniform sampler2D emissiveTex;
uniform bool      hasEmissiveTex;

uniform sampler2D envMap;
uniform bool      hasEnvMap;
uniform float     envMapIntensity;
uniform float     envMaxLod;

uniform sampler2DShadow shadowMap;
uniform bool            hasShadows;
uniform int             shadowLight;
uniform float           shadowTexel;
uniform float           shadowBias;
uniform bool            receiveShadow;
uniform bool            shadowCatcher;

uniform bool  toneMap;
uniform float exposure;
` + equirectGLSL + toneMapGLSL + `
float calcShadow() {
    vec3 p = fragLightSpacePos.xyz / fragLightSpacePos.w;
    p = p * 0.5 + 0.5;
    if (p.z > 1.0) return 1.0;
    float lit = 0.0;
    for (int x = -1; x <= 1; x++) {
        for (int y = -1; y <= 1; y++) {
            lit += texture(shadowMap, vec3(p.xy + vec2(float(x), float(y)) * shadowTexel, p.z - shadowBias));
        }
    }
    return lit / 9.0;
}

float DistributionGGX(vec3 N, vec3 H, float roughness) {
    float a  = roughness * roughness;
    float a2 = a * a;
    float NdH = max(dot(N, H), 0.0);
    float d   = NdH * NdH * (a2 - 1.0) + 1.0;
    return a2 / (PI * d * d);
}

float GeometrySchlickGGX(float cosTheta, float roughness) {
    float r = roughness + 1.0;
    float k = (r * r) / 8.0;
    return cosTheta / (cosTheta * (1.0 - k) + k);
}

vec3 FresnelSchlick(float cosTheta, vec3 F0) {
    return F0 + (1.0 - F0) * pow(clamp(1.0 - cosTheta, 0.0, 1.0), 5.0);
}

vec3 FresnelSchlickRoughness(float cosTheta, vec3 F0, float roughness) {
    return F0 + (max(vec3(1.0 - roughness), F0) - F0) * pow(clamp(1.0 - cosTheta, 0.0, 1.0), 5.0);
}

vec3 evalPBR(vec3 N, vec3 V, vec3 L, vec3 rad, vec3 albedo, float metallic, float roughness, vec3 F0) {
    float NdL = max(dot(N, L), 0.0);
    if (NdL <= 0.0) return vec3(0.0);
    vec3  H   = normalize(V + L);
    float NdV = max(dot(N, V), 0.0);
    float D   = DistributionGGX(N, H, roughness);
    float G   = GeometrySchlickGGX(NdV, roughness) * GeometrySchlickGGX(NdL, roughness);
    vec3  F   = FresnelSchlick(max(dot(H, V), 0.0), F0);
    vec3  kD  = (vec3(1.0) - F) * (1.0 - metallic);
    vec3 spec = D * G * F / max(4.0 * NdV * NdL, 0.001);
    return (kD * albedo / PI + spec) * rad * NdL;
}

float attenuate(float dist, float range) {
    if (range <= 0.0) return 1.0;
    float a = clamp(1.0 - (dist * dist) / (range * range), 0.0, 1.0);
    return a * a;
}

vec4 finish(vec3 color, float alpha) {
    if (toneMap) return vec4(toDisplay(color, exposure), alpha);
    return vec4(color, alpha);
}

void main() {
    vec4 base = fragColor * matAlbedo;
    if (hasAlbedoTex) {
        vec4 t = texture(albedoTex, fragUV);
        base *= vec4(pow(t.rgb, vec3(2.2)), t.a);
    }
    if (unlit) {
        outColor = base;
        return;
    }

    float shadow = (hasShadows && receiveShadow) ? calcShadow() : 1.0;
    if (shadowCatcher) {
        outColor = vec4(base.rgb, base.a * (1.0 - shadow));
        return;
    }

    vec3 N = normalize(fragNormal);
    if (!gl_FrontFacing) N = -N;
    vec3 V = normalize(cameraPos - fragWorldPos);

    float metallic  = matMetallic;
    float roughness = clamp(matRoughness, 0.04, 1.0);
    if (hasMetallicRoughnessTex) {
        vec4 mr = texture(metallicRoughnessTex, fragUV);
        roughness = clamp(roughness * mr.g, 0.04, 1.0);
        metallic *= mr.b;
    }
    vec3 albedo = base.rgb;
    vec3 F0     = mix(vec3(0.04), albedo, metallic);

    vec3 color = ambientColor * albedo * (1.0 - metallic);
    if (hasEnvMap) {
        vec3 F  = FresnelSchlickRoughness(max(dot(N, V), 0.0), F0, roughness);
        vec3 kD = (vec3(1.0) - F) * (1.0 - metallic);
        vec3 irradiance = textureLod(envMap, equirectUV(N), max(envMaxLod - 2.0, 0.0)).rgb;
        vec3 R = reflect(-V, N);
        vec3 prefiltered = textureLod(envMap, equirectUV(R), roughness * envMaxLod).rgb;
        color += (kD * albedo * irradiance + F * prefiltered) * envMapIntensity;
    }

    for (int i = 0; i < dirLightCount && i < MAX_DIR_LIGHTS; i++) {
        float s = (i == shadowLight) ? shadow : 1.0;
        color += evalPBR(N, V, normalize(-dirLightDir[i]), dirLightColor[i] * s, albedo, metallic, roughness, F0);
    }

    for (int i = 0; i < pointLightCount && i < MAX_POINT_LIGHTS; i++) {
        vec3 toLight = pointLightPos[i] - fragWorldPos;
        vec3 rad = pointLightColor[i] * attenuate(length(toLight), pointLightRange[i]);
        color += evalPBR(N, V, normalize(toLight), rad, albedo, metallic, roughness, F0);
    }

    for (int i = 0; i < spotLightCount && i < MAX_SPOT_LIGHTS; i++) {
        vec3  toLight = spotLightPos[i] - fragWorldPos;
        vec3  L       = normalize(toLight);
        float theta   = dot(L, normalize(-spotLightDir[i]));
        float eps     = max(spotLightInner[i] - spotLightOuter[i], 0.0001);
        float cone    = clamp((theta - spotLightOuter[i]) / eps, 0.0, 1.0);
        vec3  rad     = spotLightColor[i] * attenuate(length(toLight), spotLightRange[i]) * cone;
        color += evalPBR(N, V, L, rad, albedo, metallic, roughness, F0);
    }

    vec3 emissive = matEmissive;
    if (hasEmissiveTex) {
        emissive *= pow(texture(emissiveTex, fragUV).rgb, vec3(2.2));
    }
    color += emissive;

    outColor = finish(color, base.a);
}
` + "\x00"

const depthVertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
uniform mat4 lightMVP;
void main() {
    gl_Position = lightMVP * vec4(inPosition, 1.0);
}
` + "\x00"

const depthFragSrc = `
#version 410 core
void main() {}
` + "\x00"
